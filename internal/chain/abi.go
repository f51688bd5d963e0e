package chain

// Statically declared contract interfaces. The frontend this service
// replaces bound to contract methods by name at runtime; here the ABI is
// fixed at build time and parsed once at gateway construction, so a mismatch
// fails fast instead of at call time.

// marketplaceABI is the marketplace ledger contract interface: listing
// creation, sale execution, the listing-fee read, and the unsold-items
// query, plus the two events the indexer consumes.
const marketplaceABI = `[
  {
    "type": "function",
    "name": "getListingPrice",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "createMarketItem",
    "stateMutability": "payable",
    "inputs": [
      {"name": "nftContract", "type": "address"},
      {"name": "tokenId", "type": "uint256"},
      {"name": "price", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "createMarketSale",
    "stateMutability": "payable",
    "inputs": [
      {"name": "nftContract", "type": "address"},
      {"name": "itemId", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getMarketItems",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [
      {
        "name": "",
        "type": "tuple[]",
        "components": [
          {"name": "itemId", "type": "uint256"},
          {"name": "nftContract", "type": "address"},
          {"name": "tokenId", "type": "uint256"},
          {"name": "seller", "type": "address"},
          {"name": "owner", "type": "address"},
          {"name": "price", "type": "uint256"},
          {"name": "sold", "type": "bool"}
        ]
      }
    ]
  },
  {
    "type": "event",
    "name": "MarketItemCreated",
    "inputs": [
      {"name": "itemId", "type": "uint256", "indexed": true},
      {"name": "nftContract", "type": "address", "indexed": true},
      {"name": "tokenId", "type": "uint256", "indexed": true},
      {"name": "seller", "type": "address", "indexed": false},
      {"name": "owner", "type": "address", "indexed": false},
      {"name": "price", "type": "uint256", "indexed": false},
      {"name": "sold", "type": "bool", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "MarketItemSold",
    "inputs": [
      {"name": "itemId", "type": "uint256", "indexed": true},
      {"name": "buyer", "type": "address", "indexed": true},
      {"name": "tokenId", "type": "uint256", "indexed": false},
      {"name": "price", "type": "uint256", "indexed": false}
    ]
  }
]`

// tokenABI is the consumed surface of the token contract.
const tokenABI = `[
  {
    "type": "function",
    "name": "createToken",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "tokenURI", "type": "string"}],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "tokenURI",
    "stateMutability": "view",
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "outputs": [{"name": "", "type": "string"}]
  },
  {
    "type": "function",
    "name": "ownerOf",
    "stateMutability": "view",
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "outputs": [{"name": "", "type": "address"}]
  },
  {
    "type": "event",
    "name": "Transfer",
    "inputs": [
      {"name": "from", "type": "address", "indexed": true},
      {"name": "to", "type": "address", "indexed": true},
      {"name": "tokenId", "type": "uint256", "indexed": true}
    ]
  }
]`
